package render

// queryScript snapshots every element matching a selector list.
// It returns a JSON string so the result crosses the CDP boundary as one value.
const queryScript = `(sel) => {
	const unique = (s) => document.querySelectorAll(s).length === 1;
	const cssPath = (el) => {
		const parts = [];
		let node = el;
		while (node && node.nodeType === 1 && node !== document.documentElement) {
			const tag = node.tagName.toLowerCase();
			if (node.id && unique('#' + CSS.escape(node.id))) {
				parts.unshift(tag + '#' + CSS.escape(node.id));
				return parts.join(' > ');
			}
			if (node.classList.length > 0) {
				const cls = tag + Array.from(node.classList, (c) => '.' + CSS.escape(c)).join('');
				if (unique(cls)) {
					parts.unshift(cls);
					return parts.join(' > ');
				}
			}
			let idx = 1;
			let sib = node.previousElementSibling;
			while (sib) {
				if (sib.tagName === node.tagName) idx++;
				sib = sib.previousElementSibling;
			}
			parts.unshift(tag + ':nth-of-type(' + idx + ')');
			node = node.parentElement;
		}
		parts.unshift('html');
		return parts.join(' > ');
	};
	const label = (el) => {
		const aria = el.getAttribute('aria-label');
		if (aria && aria.trim()) return aria.trim();
		const by = el.getAttribute('aria-labelledby');
		if (by) {
			const text = by.split(/\s+/).map((id) => {
				const t = document.getElementById(id);
				return t ? t.textContent.trim() : '';
			}).filter(Boolean).join(' ');
			if (text) return text;
		}
		if (/^h[1-3]$/i.test(el.tagName)) return el.textContent.trim().slice(0, 200);
		const h = el.querySelector('h1, h2, h3');
		return h ? h.textContent.trim().slice(0, 200) : '';
	};
	const order = new Map();
	const all = document.getElementsByTagName('*');
	for (let i = 0; i < all.length; i++) order.set(all[i], i);
	const out = [];
	for (const el of document.querySelectorAll(sel)) {
		const r = el.getBoundingClientRect();
		const text = (el.innerText || '').trim();
		const m = /^h([1-3])$/i.exec(el.tagName);
		out.push({
			order: order.get(el),
			selector: cssPath(el),
			tag: el.tagName.toLowerCase(),
			id: el.id || '',
			classes: Array.from(el.classList),
			href: el.getAttribute('href') || '',
			role: el.getAttribute('role') || '',
			title: label(el),
			level: m ? Number(m[1]) : 0,
			hasText: text.length > 0,
			box: { x: r.left + window.scrollX, y: r.top + window.scrollY, width: r.width, height: r.height },
		});
	}
	return JSON.stringify(out);
}`

// locateScript returns the document box of the first element matching a
// selector, or null when the element is gone.
const locateScript = `(sel) => {
	const el = document.querySelector(sel);
	if (!el) return 'null';
	const r = el.getBoundingClientRect();
	return JSON.stringify({ x: r.left + window.scrollX, y: r.top + window.scrollY, width: r.width, height: r.height });
}`

// documentScript reports document metadata after load.
const documentScript = `() => {
	const nav = performance.getEntriesByType('navigation')[0];
	const doc = document.documentElement;
	return JSON.stringify({
		title: document.title || '',
		url: location.href,
		status: nav && nav.responseStatus ? nav.responseStatus : 0,
		width: Math.max(doc.scrollWidth, document.body ? document.body.scrollWidth : 0),
		height: Math.max(doc.scrollHeight, document.body ? document.body.scrollHeight : 0),
	});
}`
